package sqlinline

const QInsertMockup = `--sql 923569b4-373c-47f7-8f14-435d70f42429
INSERT INTO mockups (id, user_id, template_id, source_key, status)
VALUES ($1, $2, $3, $4, $5);
`

const QSelectMockupByID = `--sql f6792fdb-4989-49ae-ac63-9aad0259d3ea
SELECT id, user_id, template_id, source_key, result_key, status, created_at, updated_at
FROM mockups
WHERE id = $1;
`

const QSetMockupResult = `--sql a2f7282e-1ab5-42cf-8cbf-b2188bd9f6ce
UPDATE mockups
SET result_key = $2, status = 'ready', updated_at = NOW()
WHERE id = $1;
`

const QSetMockupStatus = `--sql 58cf81c0-ff69-47ce-a88c-cd488829daff
UPDATE mockups
SET status = $2, updated_at = NOW()
WHERE id = $1;
`
