package sqlinline

// The idempotency record is keyed by the upstream event identifier, not the
// HTTP request. ON CONFLICT DO NOTHING makes the insert the dedup check:
// zero rows affected means the event was applied before.
const QInsertIdempotencyRecord = `--sql 2f0384d6-f500-46c4-96ef-dbef5f70ab81
INSERT INTO webhook_idempotency (event_id, event_type, user_id)
VALUES ($1, $2, $3)
ON CONFLICT (event_id) DO NOTHING;
`

const QInsertWebhookAudit = `--sql 9c5b8442-5b19-4efe-a34c-ef9dfcf86c1d
INSERT INTO webhook_audit (id, event_id, event_type, user_id, credits_delta, detail)
VALUES ($1, $2, $3, $4, $5, $6);
`
