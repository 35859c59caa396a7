package assistant

import "context"

const cannedReply = "This is a placeholder reply. Configure an AI provider " +
	"under the ai section to chat about jobs, matches, skills, or your resume."

// Canned is the no-provider responder: it always answers with the same
// placeholder, so the chat surface works before any API key is configured.
type Canned struct{}

func NewCanned() *Canned {
	return &Canned{}
}

func (*Canned) Reply(ctx context.Context, _ []Message, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return cannedReply, nil
}
