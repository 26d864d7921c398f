/*
Package session issues, renews, expires and evicts authenticated-session
records.

Two backends implement the same Store contract: a local in-process map
(StoreTypeLocal) and a shared redis cache (StoreTypeShared). Both obey the
same time-based invariants — a session is live only while its expiry is
strictly in the future, expired records are cleaned up lazily on read, and
a configurable per-user cap evicts the oldest surviving sessions after each
create. The factory is the only place that branches on the backend tag:

	store, err := session.NewStore(session.StoreTypeShared,
		session.WithRedisAddr("localhost:6379", "", 0),
		session.WithDefaultTTL(30*time.Minute),
		session.WithMaxConcurrentSessions(5),
		session.WithSlidingWindow(true),
	)

The store does not authenticate, does not decide access control, and does
not persist sessions beyond process or cache lifetime.
*/
package session
