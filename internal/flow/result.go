package flow

import "context"

// ResultMessage is the fixed text of the success screen.
type ResultMessage struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

var successMessage = ResultMessage{Title: "Identity verified", Subtitle: "Access granted"}

// ResultPresenter is the terminal success screen.
type ResultPresenter struct {
	nav Navigator
}

// NewResultPresenter returns a presenter restarting through nav.
func NewResultPresenter(nav Navigator) *ResultPresenter {
	return &ResultPresenter{nav: nav}
}

// Render returns the success message.
func (p *ResultPresenter) Render() ResultMessage {
	return successMessage
}

// Restart goes back to the reference screen.
func (p *ResultPresenter) Restart(ctx context.Context) error {
	return p.nav.Navigate(ctx, ScreenReference, Params{})
}
