package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const resetSubject = "Password Reset Instructions"

var resetTemplate = template.Must(template.New("reset").Parse(`<html>
<body>
  <h2>Password Reset</h2>
  <p>You requested a password reset for your AI Image Generator account.</p>
  <p>Click the link below to reset your password:</p>
  <p><a href="{{.Link}}">Reset Password</a></p>
  <p>If you didn't request this, you can safely ignore this email.</p>
  <p>The link will expire in {{.ExpiresIn}}.</p>
</body>
</html>
`))

// buildMessage 組出含標頭的 HTML 郵件
func buildMessage(from, to, subject, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return msg.Bytes()
}

func renderReset(link, expiresIn string) (string, error) {
	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, struct{ Link, ExpiresIn string }{link, expiresIn}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
