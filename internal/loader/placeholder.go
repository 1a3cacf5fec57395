package loader

import (
	"sync"

	"github.com/Amund211/asyncloader/internal/domain"
)

type State int

const (
	Pending State = iota
	Loaded
	Errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Placeholder is handed to the caller immediately and receives the image once it is ready.
//
// It shows the loading image until then. Loaded and Errored are terminal.
type Placeholder struct {
	identifier string
	options    domain.DecodeOptions

	mutex     sync.Mutex
	state     State
	image     *domain.Image
	err       error
	observers []func(*Placeholder)
}

func newPlaceholder(identifier string, options domain.DecodeOptions, loadingImage *domain.Image) *Placeholder {
	return &Placeholder{
		identifier: identifier,
		options:    options,
		state:      Pending,
		image:      loadingImage,
	}
}

func (p *Placeholder) Identifier() string {
	return p.identifier
}

func (p *Placeholder) Options() domain.DecodeOptions {
	return p.options
}

func (p *Placeholder) Image() *domain.Image {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.image
}

func (p *Placeholder) State() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.state
}

// Loaded is true once the requested image has been delivered successfully
func (p *Placeholder) Loaded() bool {
	return p.State() == Loaded
}

// Err is set when the placeholder is showing the error image
func (p *Placeholder) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.err
}

// OnLoad registers an observer called with the placeholder when it receives its image.
//
// Observers registered after delivery are called immediately.
func (p *Placeholder) OnLoad(observer func(*Placeholder)) {
	p.mutex.Lock()
	if p.state == Pending {
		p.observers = append(p.observers, observer)
		p.mutex.Unlock()
		return
	}
	p.mutex.Unlock()

	observer(p)
}

// deliver moves the placeholder into its terminal state and notifies the observers.
//
// Only the first delivery has any effect.
func (p *Placeholder) deliver(image *domain.Image, err error) bool {
	p.mutex.Lock()
	if p.state != Pending {
		p.mutex.Unlock()
		return false
	}

	p.image = image
	p.err = err
	if err != nil {
		p.state = Errored
	} else {
		p.state = Loaded
	}
	observers := p.observers
	p.observers = nil
	p.mutex.Unlock()

	for _, observer := range observers {
		observer(p)
	}
	return true
}
