// Copyright Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

// ChannelPressureProfile defines the thresholds and delays used to apply
// soft back-pressure to a channel as it fills, instead of either blocking
// outright or dropping work. Used by the progressive-decode pipeline to
// delay (rather than immediately cancel) a pending preview decode when the
// preview channel is getting full, giving a fast-arriving final blob a
// chance to pre-empt it cleanly.
type ChannelPressureProfile struct {
	Enabled        bool  // If false, backpressure is completely disabled (always returns 0 delay)
	MinChannelSize int   // Minimum channel size to apply backpressure (avoid sleeping on small channels)
	Thresholds     []int // Empty percentage thresholds (ascending order)
	Delays         []int // Corresponding delay values in milliseconds
}

var (
	// PreviewDecodeProfile throttles submission of new preview-decode work
	// as the pending-preview queue fills.
	PreviewDecodeProfile = ChannelPressureProfile{
		Enabled:        true,
		MinChannelSize: 4,
		Thresholds:     []int{10, 20},
		Delays:         []int{20, 10, 0},
	}

	// DisabledProfile applies no backpressure at all.
	DisabledProfile = ChannelPressureProfile{
		Enabled:        false,
		MinChannelSize: 0,
		Thresholds:     []int{},
		Delays:         []int{},
	}
)

// CalculateChannelBackPressureDelay calculates the delay (in milliseconds)
// to apply given a channel of the stated capacity currently holding `used`
// items, under the given profile.
func CalculateChannelBackPressureDelay(capacity, used int, profile ChannelPressureProfile) int {
	if !profile.Enabled {
		return 0
	}
	if capacity <= profile.MinChannelSize {
		return 0
	}

	emptyPercent := ((capacity - used) * 100) / capacity

	for i, threshold := range profile.Thresholds {
		if emptyPercent < threshold {
			return profile.Delays[i]
		}
	}
	return profile.Delays[len(profile.Delays)-1]
}
