// Package campaign implements campaign lifecycle management.
//
// The service layer owns campaign creation (recipient partitioning, calendar
// placement, stage-job enqueueing), status reads, cancellation, and
// rescheduling. It depends on the repository and queue interfaces defined in
// this package and should never import from api/.
//
// The store implementation lives in repository/postgres/; the queue
// implementation in jobqueue/.
package campaign
