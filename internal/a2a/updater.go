package a2a

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/agentpay/internal/errors"
	"github.com/louisbranch/agentpay/internal/platform/id"
)

// TaskUpdater drives one task through its lifecycle on the receiving
// agent's side. Transitions persist the task snapshot after each change so
// a re-delivered message observes consistent state.
//
// Allowed transitions: working → completed, any non-terminal → failed,
// working → input-required. Terminal states are frozen.
type TaskUpdater struct {
	store TaskStore
	task  Task
}

// NewTaskUpdater wraps an existing task projection.
func NewTaskUpdater(store TaskStore, task Task) *TaskUpdater {
	return &TaskUpdater{store: store, task: task}
}

// Task returns a snapshot of the current task projection.
func (u *TaskUpdater) Task() Task {
	return cloneTask(u.task)
}

// ContextID returns the shared conversation identifier.
func (u *TaskUpdater) ContextID() string {
	return u.task.ContextID
}

// TaskID returns the task identifier.
func (u *TaskUpdater) TaskID() string {
	return u.task.ID
}

// NewAgentMessage builds an agent-role message bound to this task.
func (u *TaskUpdater) NewAgentMessage(parts ...Part) (*Message, error) {
	messageID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	return &Message{
		MessageID: messageID,
		Role:      RoleAgent,
		Parts:     parts,
		TaskID:    u.task.ID,
		ContextID: u.task.ContextID,
	}, nil
}

// AppendHistory records a message in the task's history.
func (u *TaskUpdater) AppendHistory(ctx context.Context, msg Message) error {
	u.task.History = append(u.task.History, msg)
	return u.store.Save(ctx, u.task)
}

// StartWork transitions the task to working.
func (u *TaskUpdater) StartWork(ctx context.Context) error {
	if u.task.Status.State.Terminal() {
		return apperrors.WithMetadata(apperrors.CodeValidation, "task is already terminal", map[string]string{"task_id": u.task.ID})
	}
	u.task.Status = TaskStatus{State: TaskStateWorking}
	return u.store.Save(ctx, u.task)
}

// AddArtifact attaches a typed output to the task.
func (u *TaskUpdater) AddArtifact(ctx context.Context, parts ...Part) error {
	artifactID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate artifact id: %w", err)
	}
	u.task.Artifacts = append(u.task.Artifacts, Artifact{
		ArtifactID: artifactID,
		Parts:      parts,
	})
	return u.store.Save(ctx, u.task)
}

// Complete transitions the task to the terminal completed state. Only a
// working task can complete.
func (u *TaskUpdater) Complete(ctx context.Context, msg *Message) error {
	if u.task.Status.State != TaskStateWorking {
		return apperrors.WithMetadata(apperrors.CodeValidation, "completed is only reachable from working", map[string]string{
			"task_id": u.task.ID,
			"state":   string(u.task.Status.State),
		})
	}
	u.task.Status = TaskStatus{State: TaskStateCompleted, Message: msg}
	if msg != nil {
		u.task.History = append(u.task.History, *msg)
	}
	return u.store.Save(ctx, u.task)
}

// Failed transitions the task to the terminal failed state with a
// human-readable reason message.
func (u *TaskUpdater) Failed(ctx context.Context, msg *Message) error {
	if u.task.Status.State.Terminal() {
		return apperrors.WithMetadata(apperrors.CodeValidation, "task is already terminal", map[string]string{"task_id": u.task.ID})
	}
	u.task.Status = TaskStatus{State: TaskStateFailed, Message: msg}
	if msg != nil {
		u.task.History = append(u.task.History, *msg)
	}
	return u.store.Save(ctx, u.task)
}

// RequiresInput suspends the task until the caller supplies the input
// described by msg. The message is mandatory: a suspension without an
// explanation is not actionable by the caller.
func (u *TaskUpdater) RequiresInput(ctx context.Context, msg *Message) error {
	if msg == nil {
		return apperrors.New(apperrors.CodeValidation, "input-required needs a message describing the input")
	}
	if u.task.Status.State != TaskStateWorking {
		return apperrors.WithMetadata(apperrors.CodeValidation, "input-required is only reachable from working", map[string]string{
			"task_id": u.task.ID,
			"state":   string(u.task.Status.State),
		})
	}
	u.task.Status = TaskStatus{State: TaskStateInputRequired, Message: msg}
	u.task.History = append(u.task.History, *msg)
	return u.store.Save(ctx, u.task)
}

// FailText is a convenience for the propagation policy: surface a local
// error as a failed transition carrying a human-readable message.
func (u *TaskUpdater) FailText(ctx context.Context, text string) error {
	msg, err := u.NewAgentMessage(TextPart(text))
	if err != nil {
		return err
	}
	return u.Failed(ctx, msg)
}
