package orchestrator

import (
	"errors"

	"truewater/api/internal/sample"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	// KindNotDurable: the analysis finished but the record will not survive a reload.
	KindNotDurable Kind = "not_durable"
)

// Notification is a user-visible toast.
type Notification struct {
	Kind    Kind
	Title   string
	Message string
	Err     error
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

func (o *Orchestrator) notify(n Notification) {
	if o.deps.Notifier != nil {
		o.deps.Notifier.Notify(n)
	}
}

func failure(title string, err error) Notification {
	return Notification{Kind: KindError, Title: title, Message: err.Error(), Err: err}
}

// pipelineFailure is the set of notifications for an aborted run.
func pipelineFailure(err error) []Notification {
	out := []Notification{failure("Analysis Failed", err)}
	if errors.Is(err, sample.ErrPermissionDenied) {
		out = append(out, Notification{
			Kind:    KindNotDurable,
			Title:   "Not Saved",
			Message: "The sample was analyzed but could not be saved. It will not be available after a reload.",
			Err:     err,
		})
	}
	return out
}

var analysisComplete = Notification{
	Kind:    KindSuccess,
	Title:   "Analysis Complete",
	Message: "New sample has been saved to the database.",
}
