// Package pipeline normalizes request payloads before they are dispatched to
// a provider.
//
// # Architecture
//
// A Runner holds an ordered list of stages, frozen once serving begins. For
// each request the host calls Run once; every stage receives the previous
// stage's output:
//
//	combine_system_messages -> remove_name -> observe
//
// Stages are stateless and shared by all concurrent requests. Each one gets a
// private copy of the payload, so mutating it in place is allowed.
//
// # Fail-open
//
// A stage that returns an error, returns no payload, or panics is skipped:
// the diagnostic is logged with the stage name and call type, and the next
// stage receives the payload the failing stage was given. Run never returns
// an error; delivering an unnormalized request beats not delivering it.
//
// # Built-in stages
//
//   - combine_system_messages: joins all system contents with "\n" into the first system message
//   - strip_field / remove_name: deletes an extension field from every message
//   - observe: emits a dispatch record to a sink without touching the payload
//   - webhook: lets an external service rewrite the payload
//
// Webhooks receive WebhookRequest and must return WebhookResponse:
//
//	POST <webhook_url>
//	Content-Type: application/json
//
//	{"call_type": "completion", "payload": { ... }, "metadata": {"request_id": "..."}}
//
// Response:
//
//	{"action": "allow" | "mutate", "payload": { ... }}
package pipeline
