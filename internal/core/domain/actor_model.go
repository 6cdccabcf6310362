package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_COORDINATOR  = "coordinator"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type RefreshRequest struct {
	ActorRequestMixIn
}

type RefreshResponse struct {
	ActorResponseMixIn
	Snapshot *Snapshot
}

type ValidateRequest struct {
	ActorRequestMixIn
}

type ValidateResponse struct {
	ActorResponseMixIn
}

type StationTitleRequest struct {
	ActorRequestMixIn
}

type StationTitleResponse struct {
	ActorResponseMixIn
	StationTitle
}

type SubscribeRequest struct {
	ActorRequestMixIn
	Subscriber Subscriber
}

type SubscribeResponse struct {
	ActorResponseMixIn
	// Added is false when the subscriber was already registered.
	Added bool
}

type UnsubscribeRequest struct {
	ActorRequestMixIn
	Subscriber Subscriber
}

type UnsubscribeResponse struct {
	ActorResponseMixIn
	Removed bool
}

type UpdateCredentialsRequest struct {
	ActorRequestMixIn
	Username string
	Password string
}

type UpdateCredentialsResponse struct {
	ActorResponseMixIn
}

// StartPollingRequest starts the fixed rate refresh schedule. Starting twice is a no-op.
type StartPollingRequest struct {
	ActorRequestMixIn
}

type StartPollingResponse struct {
	ActorResponseMixIn
}

// SnapshotUpdated is delivered to actors subscribed through a PID.
type SnapshotUpdated struct {
	Snapshot *Snapshot
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Selects      []GenericSelect
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
