package sqlinline

const jobColumns = `id, mockup_id, user_id, type, status, priority,
       attempts, max_attempts, queued_at, started_at,
       completed_at, failed_at, cancelled_at,
       next_retry_at, estimated_credits, actual_credits, error_message`

const QInsertJob = `--sql 32df0dcf-4e5d-4377-969a-b88a34424afa
INSERT INTO generation_jobs (
    id, mockup_id, user_id, type, status, priority,
    attempts, max_attempts, queued_at, estimated_credits
)
VALUES ($1, $2, $3, $4, 'queued', $5, 0, $6, $7, $8);
`

const QSelectJobByID = `--sql a8e70ea5-4c98-421f-9177-5e88b77d7132
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE id = $1;
`

const QSelectJobByMockupID = `--sql 8a85f5a2-c657-4ff0-9edb-ce15e5c2d0b8
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE mockup_id = $1;
`

const QSelectJobsByIDs = `--sql 87452b9f-8eee-4275-8cb6-88561ba46884
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE id = ANY($1);
`

const QSelectEligibleJobs = `--sql 48b5c18e-b560-48af-b376-eb9a05085ce5
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status = 'queued'
  AND (next_retry_at IS NULL OR next_retry_at <= $1)
ORDER BY priority ASC, queued_at ASC
LIMIT $2;
`

const QClaimJob = `--sql bc18716f-439b-46e4-926e-0164b364dd7b
UPDATE generation_jobs
SET status = 'processing',
    attempts = attempts + 1,
    started_at = COALESCE(started_at, $2),
    next_retry_at = NULL
WHERE id = $1 AND status = 'queued'
RETURNING ` + jobColumns + `;
`

const QCompleteJob = `--sql 51ebd04f-cc71-4492-86cc-1bea7a527c53
UPDATE generation_jobs
SET status = 'completed',
    completed_at = $3,
    actual_credits = $2,
    error_message = ''
WHERE id = $1 AND status = 'processing';
`

const QRetryJob = `--sql 19b1a8e2-d5ed-403a-97a1-52f23772a481
UPDATE generation_jobs
SET status = 'queued',
    error_message = $2,
    next_retry_at = $3
WHERE id = $1 AND status = 'processing';
`

const QFailJob = `--sql db178132-0943-4661-8734-0b8f9d68d126
UPDATE generation_jobs
SET status = 'failed',
    failed_at = $3,
    error_message = $2,
    next_retry_at = NULL
WHERE id = $1 AND status = 'processing';
`

const QCancelJob = `--sql 48ef673f-00f0-4f5e-b84e-9a427cf9757f
UPDATE generation_jobs
SET status = 'cancelled',
    cancelled_at = $2,
    next_retry_at = NULL
WHERE id = $1 AND status = 'queued';
`

const QSelectStuckJobs = `--sql 561ec009-f543-4132-a779-c841ea1ea4dd
SELECT ` + jobColumns + `
FROM generation_jobs
WHERE status = 'processing' AND started_at < $1;
`
