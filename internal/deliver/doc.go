// Package deliver returns finished transcripts to their owners.
//
// Selection is by final text length: short transcripts go inline, long
// ones become a hosted document link, and a file attachment covers
// document-service outages. The chosen channel and reference are
// recorded on the job before completion so re-runs never send twice.
package deliver
