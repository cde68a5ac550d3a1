package ports

import "github.com/layer-3/palette/core"

// Tokenizer converts sessions to self-describing bearer tokens and back.
// Decoding a token proves only that this service minted it; the session store has
// the final word on validity.
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
