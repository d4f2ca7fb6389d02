package channel

import (
	"log"

	"github.com/indigo-web/keel/http"
)

// notify returns the effective event sink of the channel: the combined
// connector-level listener followed by the transient per-exchange ones.
// Transient listener failures are isolated and logged at debug; they never
// reach the driver.
func (ch *Channel) notify() Listener {
	if len(ch.transient) == 0 {
		return ch.combined
	}

	return &channelNotifier{ch: ch}
}

type channelNotifier struct {
	ch *Channel
}

func (n *channelNotifier) each(fn func(l Listener)) {
	fn(n.ch.combined)

	for _, l := range n.ch.transient {
		n.isolated(l, fn)
	}
}

func (n *channelNotifier) isolated(l Listener, fn func(l Listener)) {
	defer func() {
		if r := recover(); r != nil && n.ch.debug {
			log.Printf("debug: failure invoking transient listener: %v", r)
		}
	}()

	fn(l)
}

func (n *channelNotifier) OnRequestBegin(r *http.Request) {
	n.each(func(l Listener) { l.OnRequestBegin(r) })
}

func (n *channelNotifier) OnBeforeDispatch(r *http.Request) {
	n.each(func(l Listener) { l.OnBeforeDispatch(r) })
}

func (n *channelNotifier) OnDispatchFailure(r *http.Request, err error) {
	n.each(func(l Listener) { l.OnDispatchFailure(r, err) })
}

func (n *channelNotifier) OnAfterDispatch(r *http.Request) {
	n.each(func(l Listener) { l.OnAfterDispatch(r) })
}

func (n *channelNotifier) OnRequestContent(r *http.Request, content []byte) {
	n.each(func(l Listener) { l.OnRequestContent(r, content) })
}

func (n *channelNotifier) OnRequestContentEnd(r *http.Request) {
	n.each(func(l Listener) { l.OnRequestContentEnd(r) })
}

func (n *channelNotifier) OnRequestTrailers(r *http.Request) {
	n.each(func(l Listener) { l.OnRequestTrailers(r) })
}

func (n *channelNotifier) OnRequestEnd(r *http.Request) {
	n.each(func(l Listener) { l.OnRequestEnd(r) })
}

func (n *channelNotifier) OnRequestFailure(r *http.Request, err error) {
	n.each(func(l Listener) { l.OnRequestFailure(r, err) })
}

func (n *channelNotifier) OnResponseBegin(r *http.Request) {
	n.each(func(l Listener) { l.OnResponseBegin(r) })
}

func (n *channelNotifier) OnResponseCommit(r *http.Request) {
	n.each(func(l Listener) { l.OnResponseCommit(r) })
}

func (n *channelNotifier) OnResponseContent(r *http.Request, content []byte) {
	n.each(func(l Listener) { l.OnResponseContent(r, content) })
}

func (n *channelNotifier) OnResponseEnd(r *http.Request) {
	n.each(func(l Listener) { l.OnResponseEnd(r) })
}

func (n *channelNotifier) OnResponseFailure(r *http.Request, err error) {
	n.each(func(l Listener) { l.OnResponseFailure(r, err) })
}

func (n *channelNotifier) OnComplete(r *http.Request) {
	n.each(func(l Listener) { l.OnComplete(r) })
}
