package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"context"

	"github.com/louisbranch/agentpay/internal/platform/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestContext carries one inbound message to an operation handler.
type RequestContext struct {
	// Message is the inbound envelope.
	Message Message
	// Parts aliases Message.Parts for handler convenience.
	Parts []Part
	// PriorTask is the task projection as of the previous round trip, or
	// nil when the message opens a new task. Continuation dispatch (the
	// challenge sub-protocol) keys off this distinction.
	PriorTask *Task
}

// OperationFunc handles one named operation against a task. Returning an
// error fails the task with the error's message; handlers that suspend or
// complete the task themselves return nil.
type OperationFunc func(ctx context.Context, req *RequestContext, updater *TaskUpdater) error

// Handler hosts one agent endpoint: it serves the agent card, resolves
// new-versus-continued tasks, and dispatches messages to registered
// operations by the envelope's first text part.
type Handler struct {
	card   AgentCard
	store  TaskStore
	ops    map[string]OperationFunc
	tracer trace.Tracer
}

// NewHandler creates an agent endpoint handler.
func NewHandler(card AgentCard, store TaskStore) *Handler {
	return &Handler{
		card:   card,
		store:  store,
		ops:    make(map[string]OperationFunc),
		tracer: otel.Tracer("agentpay/a2a"),
	}
}

// Register binds an operation name to its handler. The operation table is
// the agent's capability index: anything absent from it fails the task.
func (h *Handler) Register(operation string, fn OperationFunc) {
	h.ops[operation] = fn
}

// Routes returns the HTTP routes for this agent endpoint.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+AgentCardPath, h.handleCard)
	mux.HandleFunc("POST "+MessagesPath, h.handleMessage)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (h *Handler) handleCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.card)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed message envelope"})
		return
	}
	msg := req.Message
	operation, ok := FindTextPart(msg.Parts)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message requires an operation text part"})
		return
	}

	ctx, span := h.tracer.Start(ctx, "a2a.receive",
		trace.WithAttributes(
			attribute.String("a2a.operation", operation),
			attribute.String("a2a.agent", h.card.Name),
		))
	defer span.End()

	task, prior, err := h.resolveTask(ctx, msg)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("a2a.task_id", task.ID),
		attribute.String("a2a.context_id", task.ContextID),
	)

	// Re-delivery of a message for a terminal task returns the stored
	// projection unchanged so retries stay idempotent.
	if task.Status.State.Terminal() {
		writeJSON(w, http.StatusOK, task)
		return
	}

	updater := NewTaskUpdater(h.store, task)
	msg.TaskID = task.ID
	msg.ContextID = task.ContextID
	if err := updater.AppendHistory(ctx, msg); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := updater.StartWork(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	reqCtx := &RequestContext{Message: msg, Parts: msg.Parts, PriorTask: prior}
	fn, ok := h.ops[operation]
	if !ok {
		_ = updater.FailText(ctx, fmt.Sprintf("unsupported operation: %s", operation))
		writeJSON(w, http.StatusOK, updater.Task())
		return
	}

	if err := fn(ctx, reqCtx, updater); err != nil {
		// Propagation policy: local and nested errors surface as a failed
		// transition carrying the error's message, never as a silent default.
		log.Printf("operation %s failed: %v", operation, err)
		if !updater.Task().Status.State.Terminal() {
			_ = updater.FailText(ctx, err.Error())
		}
	}

	result := updater.Task()
	if result.Status.State == TaskStateWorking {
		_ = updater.FailText(ctx, fmt.Sprintf("operation %s finished without a terminal or suspended state", operation))
		result = updater.Task()
	}
	writeJSON(w, http.StatusOK, result)
}

// resolveTask loads the continuation task named by the message, or opens a
// new task when the message carries no task id. Referencing an unknown
// task id is a not-found error, not a new task: task ids are always
// allocated by the receiving agent.
func (h *Handler) resolveTask(ctx context.Context, msg Message) (Task, *Task, error) {
	if msg.TaskID != "" {
		task, err := h.store.Get(ctx, msg.TaskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				return Task{}, nil, fmt.Errorf("task %s not found", msg.TaskID)
			}
			return Task{}, nil, err
		}
		prior := cloneTask(task)
		return task, &prior, nil
	}

	taskID, err := id.NewPrefixedID("task")
	if err != nil {
		return Task{}, nil, err
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID, err = id.NewPrefixedID("ctx")
		if err != nil {
			return Task{}, nil, err
		}
	}
	task := Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted},
	}
	if err := h.store.Save(ctx, task); err != nil {
		return Task{}, nil, err
	}
	return task, nil, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Printf("write response: %v", err)
	}
}
