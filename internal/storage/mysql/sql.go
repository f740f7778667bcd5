package mysql

const insertReservationSQL = `
INSERT INTO reservations
  (room_id, guest_id, check_in, check_out, status, version)
VALUES
  (?, ?, ?, ?, ?, 0)
`

const selectReservationSQL = `
SELECT id, room_id, guest_id, check_in, check_out, status, version, created_at, updated_at
FROM reservations
WHERE id = ?
`

const selectByGuestSQL = `
SELECT id, room_id, guest_id, check_in, check_out, status, version, created_at, updated_at
FROM reservations
WHERE guest_id = ?
ORDER BY created_at DESC, id DESC
`

// Covers the index rebuild: only statuses that still occupy their interval.
const selectBlockingSQL = `
SELECT id, room_id, guest_id, check_in, check_out, status, version, created_at, updated_at
FROM reservations
WHERE status IN ('pending','confirmed','checked_in')
ORDER BY room_id, check_in
`

// Optimistic compare-and-set: the WHERE version clause makes a lost race
// update zero rows instead of clobbering the winner.
const casStatusSQL = `
UPDATE reservations
SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND version = ?
`

const upsertRoomSQL = `
INSERT INTO rooms
  (id, type, name, capacity, nightly_rate, available)
VALUES
  (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  type         = VALUES(type),
  name         = VALUES(name),
  capacity     = VALUES(capacity),
  nightly_rate = VALUES(nightly_rate),
  available    = VALUES(available),
  updated_at   = CURRENT_TIMESTAMP
`

const selectRoomSQL = `
SELECT id, type, name, capacity, nightly_rate, available
FROM rooms
WHERE id = ?
`

const selectRoomsSQL = `
SELECT id, type, name, capacity, nightly_rate, available
FROM rooms
ORDER BY id
`
