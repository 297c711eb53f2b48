// SPDX-License-Identifier: MIT
package analysis

import "time"

const (
	testSampleRate = 1000.0
	testWindow     = 100
)

var (
	testThresholds = Thresholds{Hi: 0.6, Lo: 0.3}
	testEpoch      = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

func at(ms int) time.Time {
	return testEpoch.Add(time.Duration(ms) * time.Millisecond)
}
