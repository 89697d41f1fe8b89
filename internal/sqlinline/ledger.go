package sqlinline

const QSelectBalance = `--sql 5d36de6a-9c9a-402f-a0f8-e0814922e2b3
SELECT credits FROM users WHERE id = $1;
`

// Balance mutations guard in SQL so concurrent webhooks and job finalizers
// can never drive a balance negative.
const QCreditBalance = `--sql e0468a0b-58d2-465b-9db2-4d7a8b24094c
UPDATE users
SET credits = credits + $2
WHERE id = $1
RETURNING credits;
`

const QDebitBalance = `--sql 9b5d725d-bd0b-46d4-b9b6-cd6beb239c24
UPDATE users
SET credits = credits - $2
WHERE id = $1 AND credits >= $2
RETURNING credits;
`

// Returns both the new and the prior balance so the audit entry records the
// delta actually applied when the floor clamps a refund.
const QDebitBalanceFloored = `--sql bf119825-4e90-4a92-bd9c-0dd604d73a20
UPDATE users u
SET credits = GREATEST(u.credits - $2, 0)
FROM (SELECT id, credits AS prev FROM users WHERE id = $1 FOR UPDATE) p
WHERE u.id = p.id
RETURNING u.credits, p.prev;
`

const QInsertLedgerEntry = `--sql cc6dac56-22b4-4391-954d-2110fd47dc25
INSERT INTO ledger_entries (id, user_id, delta, balance_after, reason, reference_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at;
`
