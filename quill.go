// Quill is a library for composing RFC 5322 mail, signing it with DKIM,
// and delivering it over SMTP.
//
// # Message Builder
//
// Build messages with the fluent builder API:
//
//	msg, err := quill.NewMessageBuilder().
//	    From("Sender <sender@example.com>").
//	    To("recipient@example.com").
//	    Subject("Hello").
//	    TextBody("Message content").
//	    Build()
//
// The builder accumulates problems and reports all of them at Build, so
// a message with three bad addresses produces one error naming three
// addresses. Date and Message-ID are generated when not set.
//
// # DKIM Signing
//
// Create a signer from a PEM private key and produce a signed message:
//
//	signer, err := dkim.NewSigner(dkim.Config{
//	    KeyPEM:   keyPEM,
//	    Domain:   "example.com",
//	    Selector: "mail",
//	})
//	raw, err := msg.RawSigned(signer)
//
// RawSigned prepends the DKIM-Signature header to the rendered message.
// A signing failure aborts: no unsigned message is ever produced on the
// signed path.
//
// # Delivery
//
// A Mailer delivers through a configured smarthost, or directly to the
// recipient domains' MX hosts when no smarthost is set:
//
//	mailer := quill.NewMailer(quill.MailerConfig{
//	    Smarthost: &quill.Smarthost{
//	        Host:     "smtp.example.com",
//	        Port:     587,
//	        StartTLS: true,
//	        Auth:     &smtp.Credentials{Username: "user", Password: "pass"},
//	    },
//	    Signer: signer,
//	})
//	results, err := mailer.Send(ctx, msg)
//
// For lower-level control, use the smtp package directly:
//
//	client := smtp.NewClient(&smtp.Config{LocalName: "mail.example.com"})
//	client.Dial("smtp.example.com:587")
//	client.Hello()
//	client.StartTLS()
//	client.Hello()
//	result, err := client.Send(env, raw)
//	client.Quit()
//
// # Serialization
//
// Messages serialize to JSON and MessagePack for queueing and transfer
// between processes:
//
//	data, err := msg.ToMessagePack()
//	msg, err := quill.FromMessagePack(data)
package quill

// Version is the current quill version.
const Version = "0.3.0"
