package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    flight_id  TEXT     NOT NULL UNIQUE,
    start_time DATETIME NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS readings (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER  NOT NULL REFERENCES sessions (id),
    timestamp  DATETIME NOT NULL,
    sensor     TEXT     NOT NULL,
    field      TEXT     NOT NULL,
    value      REAL,
    raw        TEXT
);

CREATE INDEX IF NOT EXISTS idx_readings_session_sensor ON readings (session_id, sensor, timestamp);`

	insertSessionSQL = `
INSERT INTO sessions (flight_id,
                      start_time,
                      config)
VALUES (?, ?, ?)`

	selectSessionsSQL = `
SELECT 
    id, 
    flight_id, 
    start_time, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertReadingSQL = `
INSERT INTO readings (session_id,
                      timestamp,
                      sensor,
                      field,
                      value,
                      raw)
VALUES (?, ?, ?, ?, ?, ?)`

	selectReadingsSQL = `
SELECT 
    id, 
    session_id, 
    timestamp, 
    sensor, 
    field, 
    value, 
    raw 
FROM readings 
WHERE 
    session_id = ? 
    AND (? = '' OR sensor = ?)
ORDER BY timestamp, id`
)
