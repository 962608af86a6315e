package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// cardCallback covers both card callback shapes Feishu posts: the legacy
// flat body and the schema 2.0 event envelope
type cardCallback struct {
	// url verification handshake
	Type      string `json:"type"`
	Challenge string `json:"challenge"`

	// legacy body
	OpenID string      `json:"open_id"`
	Token  string      `json:"token"`
	Action *cardAction `json:"action"`

	// schema 2.0
	Schema string `json:"schema"`
	Header struct {
		Token string `json:"token"`
	} `json:"header"`
	Event struct {
		Operator struct {
			OpenID string `json:"open_id"`
		} `json:"operator"`
		Action *cardAction `json:"action"`
	} `json:"event"`
}

type cardAction struct {
	Value map[string]string `json:"value"`
}

func (c *cardCallback) token() string {
	if c.Schema == "2.0" {
		return c.Header.Token
	}
	return c.Token
}

func (c *cardCallback) operator() string {
	if c.Schema == "2.0" {
		return c.Event.Operator.OpenID
	}
	return c.OpenID
}

func (c *cardCallback) value() map[string]string {
	if c.Schema == "2.0" {
		if c.Event.Action != nil {
			return c.Event.Action.Value
		}
		return nil
	}
	if c.Action != nil {
		return c.Action.Value
	}
	return nil
}

// handleCardCallback handles the block-sender control on delivered notices
func (s *Server) handleCardCallback(w http.ResponseWriter, r *http.Request) {
	var cb cardCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if s.opts.VerificationToken != "" && !validToken(cb.token(), s.opts.VerificationToken) {
		s.log.Warn().Msg("card callback with bad verification token")
		writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}

	if cb.Type == "url_verification" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": cb.Challenge})
		return
	}

	value := cb.value()
	if value["action"] != domain.BlockAction {
		writeJSON(w, http.StatusOK, toast("info", "Noma'lum amal"))
		return
	}

	// without a verification token the operator id is unauthenticated
	if s.opts.VerificationToken == "" {
		s.log.Warn().Msg("block requested but no verification token is configured")
		writeJSON(w, http.StatusOK, toast("error", "Ruxsat yo'q"))
		return
	}

	op := cb.operator()
	if !slices.Contains(s.opts.AdminOpenIDs, op) {
		s.log.Warn().Str("operator", op).Msg("block requested by non-admin")
		writeJSON(w, http.StatusOK, toast("error", "Ruxsat yo'q"))
		return
	}

	userID := value["user_id"]
	if err := s.admin.Block(r.Context(), userID, op, "card"); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("card block failed")
		writeJSON(w, http.StatusOK, toast("error", "Bloklab bo'lmadi"))
		return
	}
	writeJSON(w, http.StatusOK, toast("success", "Foydalanuvchi bloklandi"))
}

func validToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func toast(kind, content string) map[string]interface{} {
	return map[string]interface{}{
		"toast": map[string]string{
			"type":    kind,
			"content": content,
		},
	}
}
