package auth

import "fmt"

func verifyEmailBody(name, code string) string {
	return fmt.Sprintf(
		`<p>Hi %s,</p><p>Your QuickKash verification code is <b>%s</b>.</p><p>It expires in 5 minutes.</p>`,
		name, code)
}

func resetPasswordBody(name, code string) string {
	return fmt.Sprintf(
		`<p>Hi %s,</p><p>Your QuickKash password reset code is <b>%s</b>.</p><p>It expires in 5 minutes. If you didn't request this, you can ignore this email.</p>`,
		name, code)
}
