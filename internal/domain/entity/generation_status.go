// Package entity 定义领域实体
package entity

// GenerationStatus 故事生成状态
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// GenerationEvent 驱动状态迁移的事件
type GenerationEvent string

const (
	EventDispatch GenerationEvent = "dispatch"
	EventSucceed  GenerationEvent = "succeed"
	EventFail     GenerationEvent = "fail"
	EventRetry    GenerationEvent = "retry"
)

// generationTransitions 合法迁移表：from -> event -> to
var generationTransitions = map[GenerationStatus]map[GenerationEvent]GenerationStatus{
	GenerationPending: {
		EventDispatch: GenerationProcessing,
	},
	GenerationProcessing: {
		EventSucceed: GenerationCompleted,
		EventFail:    GenerationFailed,
	},
	GenerationFailed: {
		EventRetry: GenerationProcessing,
	},
}

// eventTargets 每个事件的名义目标状态，用于错误描述
var eventTargets = map[GenerationEvent]GenerationStatus{
	EventDispatch: GenerationProcessing,
	EventSucceed:  GenerationCompleted,
	EventFail:     GenerationFailed,
	EventRetry:    GenerationProcessing,
}

// AllGenerationStatuses 返回全部状态
func AllGenerationStatuses() []GenerationStatus {
	return []GenerationStatus{GenerationPending, GenerationProcessing, GenerationCompleted, GenerationFailed}
}

// AllGenerationEvents 返回全部事件
func AllGenerationEvents() []GenerationEvent {
	return []GenerationEvent{EventDispatch, EventSucceed, EventFail, EventRetry}
}

// Valid 是否为已知状态
func (s GenerationStatus) Valid() bool {
	_, ok := generationTransitions[s]
	return ok || s == GenerationCompleted
}

// IsTerminal completed 没有任何出边
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationCompleted
}

// CanApply 判断事件在当前状态下是否合法
func (s GenerationStatus) CanApply(event GenerationEvent) bool {
	_, ok := generationTransitions[s][event]
	return ok
}

// Apply 执行状态迁移，非法组合返回 *InvalidStateTransitionError
func (s GenerationStatus) Apply(event GenerationEvent) (GenerationStatus, error) {
	if to, ok := generationTransitions[s][event]; ok {
		return to, nil
	}
	reason := "transition not allowed"
	if _, known := eventTargets[event]; !known {
		reason = "unknown event"
	} else if s.IsTerminal() {
		reason = "completed stories cannot change generation status"
	}
	return s, &InvalidStateTransitionError{
		From:   s,
		To:     eventTargets[event],
		Event:  event,
		Reason: reason,
	}
}
