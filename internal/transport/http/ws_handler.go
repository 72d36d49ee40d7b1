package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/identity"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler serves the live teacher and student screens over websockets.
type WSHandler struct {
	svc      Services
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(svc Services) *WSHandler {
	return &WSHandler{
		svc:    svc,
		logger: svc.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	// last frames close the socket once written.
	last bool
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type kickPayload struct {
	StudentID string `json:"studentId"`
}

type answerPayload struct {
	Value domain.AnswerValue `json:"value"`
}

type joinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func errorMessage(err error) outboundMessage {
	_, kind := classify(err)
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Kind: kind}}
}

// socket serializes writes to one connection. Senders give up once the read side is done.
type socket struct {
	conn       *websocket.Conn
	logger     *slog.Logger
	send       chan outboundMessage
	done       chan struct{}
	writerDone chan struct{}
}

func newSocket(conn *websocket.Conn, logger *slog.Logger) *socket {
	s := &socket{
		conn:       conn,
		logger:     logger,
		send:       make(chan outboundMessage, 16),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *socket) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug("ws write failed", "error", err)
				_ = s.conn.Close()
				return
			}
			if msg.last {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *socket) push(msg outboundMessage) {
	select {
	case s.send <- msg:
	case <-s.done:
	case <-s.writerDone:
	}
}

// readLoop hands every inbound frame to handle until the connection fails.
func (s *socket) readLoop(handle func(inboundMessage)) {
	for {
		var inbound inboundMessage
		if err := s.conn.ReadJSON(&inbound); err != nil {
			break
		}
		handle(inbound)
	}
	close(s.done)
	<-s.writerDone
}

// forward pushes every view from updates as a state frame.
func forward[T any](s *socket, updates <-chan T) {
	for {
		select {
		case view := <-updates:
			s.push(outboundMessage{Type: "state", Payload: view})
		case <-s.done:
			return
		}
	}
}

// ServeTeacher attaches the client to its session (sessionId query parameter, or the
// client's stored teacher session) and relays the live view.
func (h *WSHandler) ServeTeacher(c *gin.Context) {
	uid := clientID(c)
	ctrl := app.NewTeacherController(h.svc.Sessions, h.svc.Store, h.svc.StateFor(uid), identity.Static(uid), h.logger)
	defer ctrl.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSocket(conn, h.logger)

	if id := c.Query("sessionId"); id != "" {
		_, err = ctrl.Open(ctx, id)
	} else {
		_, err = ctrl.Resume(ctx)
	}
	if err != nil {
		msg := errorMessage(err)
		msg.last = true
		s.push(msg)
		s.readLoop(func(inboundMessage) {})
		return
	}

	go forward(s, ctrl.Updates())
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Info("teacher session closed", "client", uid, "error", err)
			msg := errorMessage(err)
			msg.last = true
			s.push(msg)
		}
	}()

	s.readLoop(func(in inboundMessage) {
		if err := h.teacherCommand(ctx, ctrl, s, in); err != nil {
			s.push(errorMessage(err))
		}
	})
}

func (h *WSHandler) teacherCommand(ctx context.Context, ctrl *app.TeacherController, s *socket, in inboundMessage) error {
	switch in.Type {
	case "next":
		_, err := ctrl.Next(ctx)
		return err
	case "previous":
		_, err := ctrl.Previous(ctx)
		return err
	case "end":
		_, err := ctrl.End(ctx)
		return err
	case "kick":
		var payload kickPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil || payload.StudentID == "" {
			return fmt.Errorf("%w: invalid kick payload", domain.ErrValidation)
		}
		return ctrl.Kick(ctx, payload.StudentID)
	case "answers":
		s.push(outboundMessage{Type: "answers", Payload: ctrl.AnswersForCurrent()})
		return nil
	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrValidation, in.Type)
	}
}

// ServeStudent joins with the code and name query parameters, or resumes the client's
// stored student session, and relays the live view. An unjoined socket may still send a
// join frame.
func (h *WSHandler) ServeStudent(c *gin.Context) {
	uid := clientID(c)
	ctrl := app.NewStudentController(h.svc.Participation, h.svc.Store, h.svc.StateFor(uid), h.logger)
	defer ctrl.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSocket(conn, h.logger)

	go forward(s, ctrl.Updates())
	go func() { _ = ctrl.Run(ctx) }()

	code, name := c.Query("code"), c.Query("name")
	if code != "" || name != "" {
		_, err = ctrl.Join(ctx, code, name)
	} else {
		_, err = ctrl.Resume(ctx)
	}
	if err != nil {
		s.push(outboundMessage{Type: "state", Payload: ctrl.View()})
		s.push(errorMessage(err))
	}

	s.readLoop(func(in inboundMessage) {
		if err := h.studentCommand(ctx, ctrl, s, in); err != nil {
			s.push(errorMessage(err))
		}
	})
}

func (h *WSHandler) studentCommand(ctx context.Context, ctrl *app.StudentController, s *socket, in inboundMessage) error {
	switch in.Type {
	case "join":
		var payload joinPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return fmt.Errorf("%w: invalid join payload", domain.ErrValidation)
		}
		_, err := ctrl.Join(ctx, payload.Code, payload.Name)
		return err
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return fmt.Errorf("%w: invalid answer payload", domain.ErrValidation)
		}
		_, err := ctrl.Submit(ctx, payload.Value)
		return err
	case "change":
		ctrl.ChangeAnswer()
		return nil
	case "leave":
		if err := ctrl.Leave(ctx); err != nil {
			return err
		}
		s.push(outboundMessage{Type: "state", Payload: ctrl.View(), last: true})
		return nil
	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrValidation, in.Type)
	}
}
