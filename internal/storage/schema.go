package storage

// schema is the subset of the collection layout the report reads. Columns the
// report never touches are kept so fixtures look like real collections.
const schema = `
-- 'col' holds collection-wide metadata; legacy collections keep every deck
-- as JSON in 'decks', keyed by deck id.
CREATE TABLE IF NOT EXISTS col (
    id INTEGER PRIMARY KEY,
    crt INTEGER NOT NULL DEFAULT 0,
    mod INTEGER NOT NULL DEFAULT 0,
    ver INTEGER NOT NULL DEFAULT 11,
    decks TEXT NOT NULL DEFAULT '{}'
);

-- Modern collections store one row per deck; hierarchy levels in 'name'
-- are separated by 0x1f.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);

-- 'ord' is the template ordinal that produced the card, 'did' its current deck.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY,
    nid INTEGER NOT NULL DEFAULT 0,
    did INTEGER NOT NULL,
    ord INTEGER NOT NULL DEFAULT 0
);

-- Append-only review log. 'id' is the review time in epoch milliseconds,
-- 'type' 0: learn, 1: review, 2: relearn, 3: filtered, 4: manual,
-- 'ease' 1: again, 2: hard, 3: good, 4: easy.
CREATE TABLE IF NOT EXISTS revlog (
    id INTEGER PRIMARY KEY,
    cid INTEGER NOT NULL,
    usn INTEGER NOT NULL DEFAULT 0,
    ease INTEGER NOT NULL,
    ivl INTEGER NOT NULL DEFAULT 0,
    lastIvl INTEGER NOT NULL DEFAULT 0,
    factor INTEGER NOT NULL DEFAULT 0,
    time INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_revlog_cid ON revlog (cid);
CREATE INDEX IF NOT EXISTS ix_cards_did ON cards (did);
`
