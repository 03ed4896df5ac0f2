package pipeline

import "github.com/tailored-agentic-units/obfusengine/observability"

const (
	EventPipelineStart    observability.EventType = "pipeline.start"
	EventPipelineComplete observability.EventType = "pipeline.complete"
	EventStageStart       observability.EventType = "pipeline.stage.start"
	EventStageComplete    observability.EventType = "pipeline.stage.complete"
)
