package channel

import (
	"reflect"
	"time"
)

// Select waits on a set of channels for at least one to have a frame (or a
// terminal error) ready for Recv, or for timeout to elapse. A non-positive
// timeout blocks until a channel is ready; with no channels at all, Select
// returns at once (after sleeping for a positive timeout). A nil slice is
// returned when the timeout elapses with nothing ready; this is not an
// error.
func Select(channels []*Channel, timeout time.Duration) []*Channel {
	if ready := readyChannels(channels); len(ready) > 0 {
		return ready
	}
	if len(channels) == 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil
	}

	cases := make([]reflect.SelectCase, 0, len(channels)+1)
	for _, ch := range channels {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch.sigChan())})
	}
	timeoutIdx := -1
	if timeout > 0 {
		timeoutIdx = len(cases)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(time.After(timeout))})
	}

	chosen, _, _ := reflect.Select(cases)
	if timeoutIdx >= 0 && chosen == timeoutIdx {
		return nil
	}
	return readyChannels(channels)
}

func readyChannels(channels []*Channel) []*Channel {
	var ready []*Channel
	for _, ch := range channels {
		if ch.hasPending() {
			ready = append(ready, ch)
		}
	}
	return ready
}
