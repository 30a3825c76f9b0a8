//go:generate mockgen -package=mail -destination=mock.go -source=interfaces.go

package mail

import "context"

type IMailer interface {
	// SendPasswordReset 寄出重設密碼連結
	SendPasswordReset(ctx context.Context, to, link string) error
}
