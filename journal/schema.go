// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	ticket TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	lots REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pnl REAL NOT NULL,
	realized_r REAL NOT NULL,
	commission REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS partials (
	position_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	level TEXT NOT NULL,
	time DATETIME NOT NULL,
	price REAL NOT NULL,
	fraction REAL NOT NULL,
	banked_pnl REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	daily_dd_pct REAL NOT NULL,
	total_dd_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS drawdown_events (
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	equity REAL NOT NULL,
	threshold REAL NOT NULL,
	baseline REAL NOT NULL,
	positions TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
CREATE INDEX IF NOT EXISTS idx_partials_position ON partials(position_id);
`
