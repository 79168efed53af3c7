package model

import "github.com/google/uuid"

type StationID uuid.UUID

type TransportID uuid.UUID

type IndustryID uuid.UUID

func NewStationID() StationID { return StationID(uuid.New()) }

func NewTransportID() TransportID { return TransportID(uuid.New()) }

func NewIndustryID() IndustryID { return IndustryID(uuid.New()) }

// ParseStationID accepts the canonical uuid text form.
func ParseStationID(s string) (StationID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return StationID{}, err
	}
	return StationID(id), nil
}

func (id StationID) String() string   { return uuid.UUID(id).String() }
func (id TransportID) String() string { return uuid.UUID(id).String() }
func (id IndustryID) String() string  { return uuid.UUID(id).String() }

func (id StationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *StationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id TransportID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TransportID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id IndustryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *IndustryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
