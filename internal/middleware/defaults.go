package middleware

import (
	"fmt"

	"github.com/taskflowio/ltq/internal/domain"
)

// FromOptions builds the default middleware list for a task's options, in
// the default registration order: MaxTries, MaxAge, MaxRate. The Reporter
// hook is not task-scoped; it is added through the app's own middleware
// list (App.Use), which the worker places ahead of (outside) these.
func FromOptions(opts domain.Options) ([]Middleware, error) {
	var mws []Middleware
	if opts.MaxTries != nil {
		mws = append(mws, MaxTries{Max: *opts.MaxTries})
	}
	if opts.MaxAge != nil {
		mws = append(mws, MaxAge{Max: *opts.MaxAge})
	}
	if opts.MaxRate != "" {
		mr, err := NewMaxRate(opts.MaxRate)
		if err != nil {
			return nil, fmt.Errorf("middleware: from options: %w", err)
		}
		mws = append(mws, mr)
	}
	return mws, nil
}
