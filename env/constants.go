package env

import "time"

const (
	// Wind rings hold one sample per reading; at 1 sample every 2.5s 720 covers 30 minutes.
	WindRingSize = 720
	// Averages from fewer samples than this use ColdStartDivisor instead of the count.
	MinWindSamples   = 6
	ColdStartDivisor = 15.0

	// Window used when the station does not supply its own rain rate.
	RainRateWindow = time.Minute * 5

	// Rows older than this are purged from the time-series store.
	Retention = time.Hour * 24 * 7

	// "no data yet" markers. Highs start very low so that any reading beats them, lows very high.
	HighSentinel = -9999.0
	LowSentinel  = 9999.0

	// Uninitialised previous value for the spike filter, first reading always passes.
	Uninitialised = -9999.0

	// Epsilon for directly measured metrics, derived metrics use 10^-dp.
	MeasuredEpsilon = 0.001

	// The three retries of a scope write happen inside the scope lock so keep them short.
	PersistRetries    = 3
	PersistRetryDelay = time.Millisecond * 50

	DBWriteRetries = 3

	NineAmHour = 9
)
