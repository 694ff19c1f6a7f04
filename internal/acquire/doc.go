// Package acquire pulls source media from the HTTP gateway into a per-job
// workspace. Transfer strategy is a pure function of the declared size:
// small objects stream in one request, large ones are pulled in sequential
// byte ranges with per-chunk retry and resume, and objects above the
// configured cap are rejected before any bytes move.
package acquire
