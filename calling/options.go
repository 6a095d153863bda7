package calling

import "time"

// coordinatorOptions are the tunables of a Coordinator. Defaults match
// production behavior; tests shrink the timings.
type coordinatorOptions struct {
	connectTimeout    time.Duration
	iceBatchThreshold int
	iceBatchDebounce  time.Duration
	iceFetchAttempts  int
	recorder          CallRecorder
	ui                UI
	directory         ThreadDirectory
	iceServers        ICEServerProvider
}

func defaultCoordinatorOptions() coordinatorOptions {
	return coordinatorOptions{
		connectTimeout:    2 * time.Minute,
		iceBatchThreshold: 24,
		iceBatchDebounce:  100 * time.Millisecond,
		iceFetchAttempts:  3,
		recorder:          nopRecorder{},
		ui:                nopUI{},
	}
}

// A CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

// WithConnectTimeout bounds how long a call may stay unconnected before it
// fails with a timeout.
func WithConnectTimeout(d time.Duration) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.connectTimeout = d
	}
}

// WithICEBatchThreshold sets the pending candidate count above which a batch
// is sent immediately instead of waiting for the debounce window.
func WithICEBatchThreshold(n int) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.iceBatchThreshold = n
	}
}

// WithICEBatchDebounce sets the quiet period after which pending candidates
// are flushed.
func WithICEBatchDebounce(d time.Duration) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.iceBatchDebounce = d
	}
}

// WithICEFetchAttempts sets how many times fetching ICE servers is retried
// before a call attempt fails.
func WithICEFetchAttempts(n int) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.iceFetchAttempts = n
	}
}

// WithCallRecorder wires a call history store.
func WithCallRecorder(recorder CallRecorder) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.recorder = recorder
	}
}

// WithUI wires the user facing event sink.
func WithUI(ui UI) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.ui = ui
	}
}

// WithThreadDirectory wires participant resolution for conversation threads.
func WithThreadDirectory(directory ThreadDirectory) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.directory = directory
	}
}

// WithICEServerProvider wires STUN/TURN server discovery for new transports.
func WithICEServerProvider(provider ICEServerProvider) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.iceServers = provider
	}
}
