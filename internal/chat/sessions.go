package chat

import "sync"

type session struct {
	dialogNumber  int64
	currentTurnID int64
	lastQuestion  string
	lastModelID   string
}

// Sessions keeps per-user conversational state: the active dialog
// number, the turn the next terminal update writes to, and the last
// question for the regenerate flow. Safe for concurrent use.
type Sessions struct {
	mu     sync.Mutex
	byUser map[int64]*session
}

func NewSessions() *Sessions {
	return &Sessions{byUser: make(map[int64]*session)}
}

func (s *Sessions) get(userID int64) *session {
	sess, ok := s.byUser[userID]
	if !ok {
		sess = &session{}
		s.byUser[userID] = sess
	}
	return sess
}

func (s *Sessions) DialogNumber(userID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	if !ok || sess.dialogNumber == 0 {
		return 0, false
	}
	return sess.dialogNumber, true
}

func (s *Sessions) SetDialogNumber(userID, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).dialogNumber = n
}

// BindCurrentTurn implements stream.Binder.
func (s *Sessions) BindCurrentTurn(userID, turnID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).currentTurnID = turnID
}

func (s *Sessions) CurrentTurn(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	if !ok {
		return 0
	}
	return sess.currentTurnID
}

func (s *Sessions) SetLastQuestion(userID int64, question, modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.get(userID)
	sess.lastQuestion = question
	sess.lastModelID = modelID
}

func (s *Sessions) LastQuestion(userID int64) (question, modelID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, found := s.byUser[userID]
	if !found || sess.lastQuestion == "" {
		return "", "", false
	}
	return sess.lastQuestion, sess.lastModelID, true
}
