package mail

import "context"

// Template selects a rendering layout by name and carries the data the
// layout interpolates. Names map to files under views/mails.
type Template struct {
	Name string
	Data map[string]interface{}
}

// Message is a single outbound transactional email.
type Message struct {
	To       string
	Bcc      string
	Subject  string
	Template Template
}

// Mailer sends transactional emails. The SMTP implementation is the only
// concrete one; tests use a recording fake.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
