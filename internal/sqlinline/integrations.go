package sqlinline

// Integration credentials live in the database so keys can be rotated
// without redeploying; the environment variable always wins when set.

const QSelectIntegrationToken = `--sql 5b0a6b7e-20fb-4a0f-bb61-0a2f4f6f3a7d
select token
from integration_credentials
where provider = $1;
`

const QUpsertIntegrationToken = `--sql e00d9c5a-74a7-4a6e-b96f-55b9f7f6a441
insert into integration_credentials (provider, token, props, updated_at)
values ($1, $2, $3, now())
on conflict (provider)
do update set token = excluded.token, props = excluded.props, updated_at = now();
`
