package chain

import "github.com/leeforge/interception/plugin"

// Observer is notified around every chain call and hook. Observers must not
// change results or errors; they only attach diagnostics.
type Observer interface {
	CallStarted(call *Call)
	HookStarted(call *Call, link *plugin.Link, phase plugin.Phase)
	HookFinished(call *Call, link *plugin.Link, phase plugin.Phase, err error)
	CallFinished(call *Call, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) CallStarted(*Call)                                    {}
func (NopObserver) HookStarted(*Call, *plugin.Link, plugin.Phase)        {}
func (NopObserver) HookFinished(*Call, *plugin.Link, plugin.Phase, error) {}
func (NopObserver) CallFinished(*Call, error)                            {}

// Observers fans notifications out in order. Finish notifications run in
// reverse order so observers nest like the hooks they observe.
type Observers []Observer

func (o Observers) CallStarted(call *Call) {
	for _, obs := range o {
		obs.CallStarted(call)
	}
}

func (o Observers) HookStarted(call *Call, link *plugin.Link, phase plugin.Phase) {
	for _, obs := range o {
		obs.HookStarted(call, link, phase)
	}
}

func (o Observers) HookFinished(call *Call, link *plugin.Link, phase plugin.Phase, err error) {
	for i := len(o) - 1; i >= 0; i-- {
		o[i].HookFinished(call, link, phase, err)
	}
}

func (o Observers) CallFinished(call *Call, err error) {
	for i := len(o) - 1; i >= 0; i-- {
		o[i].CallFinished(call, err)
	}
}
