package env

type Args struct {
	Test    *bool
	Verbose *bool
	DataDir *string
}
