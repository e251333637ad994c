package outbox

// Appointment lifecycle topics. The Kafka topic name equals EventType, one
// event type per topic. Downstream reminder and analytics services consume
// these; the calendar's own realtime fan-out goes over the Redis change
// feed instead.
const (
	EventAppointmentCreated = "appointment.created.v1"
	EventAppointmentUpdated = "appointment.updated.v1"
	EventAppointmentDeleted = "appointment.deleted.v1"
)

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the appointment write. SalonID keys the Kafka message,
// so one salon's appointment events stay ordered on a single partition.
type Event struct {
	SalonID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
