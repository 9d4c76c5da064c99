package store

// Schema creates the identity table. Document fingerprints carry their own
// unique constraints so a document can be bound to one wallet only.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
	id             UUID PRIMARY KEY,
	wallet_address TEXT NOT NULL UNIQUE CHECK (wallet_address = lower(wallet_address)),
	aadhaar_hash   TEXT NOT NULL,
	pan_hash       TEXT NOT NULL,
	is_verified    BOOLEAN NOT NULL DEFAULT FALSE,
	signature      TEXT,
	nonce          BIGINT NOT NULL DEFAULT 0 CHECK (nonce >= 0),
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT identities_aadhaar_hash_key UNIQUE (aadhaar_hash),
	CONSTRAINT identities_pan_hash_key UNIQUE (pan_hash),
	CONSTRAINT identities_verified_has_signature CHECK (NOT is_verified OR signature IS NOT NULL)
);
`
