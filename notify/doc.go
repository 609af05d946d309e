// Package notify delivers one-time codes. SMTP implements
// falcomAuth.EmailSender, SMSGateway implements falcomAuth.SMSSender, and Log
// implements both by writing messages to a zap logger for local development.
package notify
