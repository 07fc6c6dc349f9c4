// Package sqlinline holds every SQL statement the service executes. Each
// constant starts with a marker line consumed by infra.SQLRunner for log
// correlation and checked by tools/sqllint.
package sqlinline

const jobColumns = `id, user_id, prompt, duration, quality, mode, status,
       coalesce(error_message, ''), coalesce(result_url, ''),
       coalesce(wav_url, ''), coalesce(mp3_url, ''),
       created_at, updated_at, completed_at`

const QInsertJob = `--sql 92be095a-cee0-4056-9fa3-d49632c6cda7
insert into jobs (id, user_id, prompt, duration, quality, mode, status)
values ($1, $2, $3, $4, $5, $6, $7)
returning created_at, updated_at;
`

const QSelectJob = `--sql ce913023-2a19-4402-884f-8a97dcd4e5ec
select ` + jobColumns + `
from jobs
where id = $1;
`

const QListJobsForUser = `--sql 3eae15ee-c66f-4fdc-8ecb-6280fd902e8c
select ` + jobColumns + `
from jobs
where user_id = $1
order by created_at desc
limit $2;
`

// QSelectNextReady picks the single oldest claimable job. Ties on
// created_at are broken deterministically by id.
const QSelectNextReady = `--sql 9b9bf51b-dfd4-4bcb-8afe-a127f9539e9b
select ` + jobColumns + `
from jobs
where status in ('pending', 'queued')
order by created_at asc, id asc
limit 1;
`

// QClaimJob is the compare-and-set at the heart of the claiming protocol:
// the row moves to processing only if its status still equals the one the
// caller observed. Zero rows affected means another worker won.
const QClaimJob = `--sql 3d150f4f-637d-4f97-9dac-112650739ca4
update jobs
set status = 'processing', updated_at = now()
where id = $1 and status = $2;
`

const QCompleteJob = `--sql fea5908d-4f9a-4454-bc73-bbb7e3e393fa
update jobs
set status = 'completed',
    wav_url = $2,
    mp3_url = $3,
    result_url = $3,
    completed_at = now(),
    updated_at = now()
where id = $1 and status = 'processing';
`

const QFailJob = `--sql 1f8089fb-a613-40ba-bcd8-f61fa0d18ede
update jobs
set status = 'failed',
    error_message = $2,
    updated_at = now()
where id = $1 and status = 'processing';
`

// QNotifyJob fans the mutated job id out to every listening API process.
const QNotifyJob = `--sql 8636e352-5448-41a2-8f7e-2b6979f7a2ca
select pg_notify('job_updates', $1);
`
