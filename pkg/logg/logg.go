// Package logg centralizes structured log field names so that log output
// stays greppable across layers.
package logg

const (
	Layer     = "layer"
	Operation = "operation"
	TaskID    = "task_id"
	RunID     = "run_id"
	Step      = "step"
	Action    = "action"
	Selector  = "selector"
	URL       = "url"
	Provider  = "provider"
	Path      = "path"
	Region    = "region"
	Count     = "count"
)
