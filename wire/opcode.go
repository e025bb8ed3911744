// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Opcode identifies a datagram's message type. The opcode space is a
// fixed, versioned enumeration shared verbatim by every service in the
// cluster. Services drop opcodes they do not recognize; an unknown
// opcode is never fatal.
//
// The space is split by convention:
//
//	1–999      client-facing protocol (session lifecycle, object
//	           fields, interest management)
//	1000–1999  client agent internal
//	2000–2199  state server internal
//	2200–2999  database state server internal
//	3000–3999  database server internal
//	9000–9999  message director control
type Opcode uint16

// Client-facing protocol opcodes.
const (
	ClientHello      Opcode = 1
	ClientHelloResp  Opcode = 2
	ClientDisconnect Opcode = 3
	ClientEject      Opcode = 4
	ClientHeartbeat  Opcode = 5

	ClientObjectSetField  Opcode = 120
	ClientObjectSetFields Opcode = 121
	ClientObjectLocation  Opcode = 140

	ClientEnterObjectRequired           Opcode = 142
	ClientEnterObjectRequiredOther      Opcode = 143
	ClientEnterObjectRequiredOwner      Opcode = 172
	ClientEnterObjectRequiredOwnerOther Opcode = 173

	ClientObjectLeaving      Opcode = 132
	ClientObjectLeavingOwner Opcode = 161

	ClientAddInterest         Opcode = 200
	ClientAddInterestMultiple Opcode = 201
	ClientRemoveInterest      Opcode = 203
	ClientDoneInterestResp    Opcode = 204
)

// Client agent internal opcodes.
const (
	CASetState               Opcode = 1000
	CASetClientID            Opcode = 1001
	CASendDatagram           Opcode = 1002
	CAEject                  Opcode = 1004
	CADrop                   Opcode = 1005
	CAGetNetworkAddress      Opcode = 1006
	CAGetNetworkAddressResp  Opcode = 1007
	CADeclareObject          Opcode = 1010
	CAUndeclareObject        Opcode = 1011
	CAAddSessionObject       Opcode = 1012
	CARemoveSessionObject    Opcode = 1013
	CASetFieldsSendable      Opcode = 1014
	CAOpenChannel            Opcode = 1100
	CACloseChannel           Opcode = 1101
	CAAddPostRemove          Opcode = 1110
	CAClearPostRemoves       Opcode = 1111
	CAAddInterest            Opcode = 1200
	CAAddInterestMultiple    Opcode = 1201
	CARemoveInterest         Opcode = 1203
)

// State server internal opcodes.
const (
	SSCreateObjectWithRequired      Opcode = 2000
	SSCreateObjectWithRequiredOther Opcode = 2001
	SSDeleteAIObjects               Opcode = 2009

	SSObjectGetField      Opcode = 2010
	SSObjectGetFieldResp  Opcode = 2011
	SSObjectGetFields     Opcode = 2012
	SSObjectGetFieldsResp Opcode = 2013
	SSObjectGetAll        Opcode = 2014
	SSObjectGetAllResp    Opcode = 2015
	SSObjectSetField      Opcode = 2020
	SSObjectSetFields     Opcode = 2021

	SSObjectDeleteFieldRAM  Opcode = 2030
	SSObjectDeleteFieldsRAM Opcode = 2031
	SSObjectDeleteRAM       Opcode = 2032

	SSObjectSetLocation                    Opcode = 2040
	SSObjectChangingLocation               Opcode = 2041
	SSObjectEnterLocationWithRequired      Opcode = 2042
	SSObjectEnterLocationWithRequiredOther Opcode = 2043
	SSObjectGetLocation                    Opcode = 2044
	SSObjectGetLocationResp                Opcode = 2045

	SSObjectSetAI                    Opcode = 2050
	SSObjectChangingAI               Opcode = 2051
	SSObjectEnterAIWithRequired      Opcode = 2052
	SSObjectEnterAIWithRequiredOther Opcode = 2053
	SSObjectGetAI                    Opcode = 2054
	SSObjectGetAIResp                Opcode = 2055

	SSObjectSetOwner                    Opcode = 2060
	SSObjectChangingOwner               Opcode = 2061
	SSObjectEnterOwnerWithRequired      Opcode = 2062
	SSObjectEnterOwnerWithRequiredOther Opcode = 2063
	SSObjectGetOwner                    Opcode = 2064
	SSObjectGetOwnerResp                Opcode = 2065

	SSObjectGetZoneObjects  Opcode = 2100
	SSObjectGetZonesObjects Opcode = 2102
	SSObjectGetChildren     Opcode = 2104

	SSObjectGetZoneCount      Opcode = 2110
	SSObjectGetZoneCountResp  Opcode = 2111
	SSObjectGetZonesCount     Opcode = 2112
	SSObjectGetZonesCountResp Opcode = 2113
	SSObjectGetChildCount     Opcode = 2114
	SSObjectGetChildCountResp Opcode = 2115

	SSObjectDeleteZone     Opcode = 2120
	SSObjectDeleteZones    Opcode = 2122
	SSObjectDeleteChildren Opcode = 2124
)

// Database state server internal opcodes.
const (
	DBSSObjectActivateWithDefaults      Opcode = 2200
	DBSSObjectActivateWithDefaultsOther Opcode = 2201
	DBSSObjectGetActivated              Opcode = 2207
	DBSSObjectGetActivatedResp          Opcode = 2208
	DBSSObjectDeleteFieldDisk           Opcode = 2230
	DBSSObjectDeleteFieldsDisk          Opcode = 2231
	DBSSObjectDeleteDisk                Opcode = 2232
)

// Database server internal opcodes.
const (
	DBCreateObject     Opcode = 3000
	DBCreateObjectResp Opcode = 3001

	DBObjectGetField      Opcode = 3010
	DBObjectGetFieldResp  Opcode = 3011
	DBObjectGetFields     Opcode = 3012
	DBObjectGetFieldsResp Opcode = 3013
	DBObjectGetAll        Opcode = 3014
	DBObjectGetAllResp    Opcode = 3015

	DBObjectSetField             Opcode = 3020
	DBObjectSetFields            Opcode = 3021
	DBObjectSetFieldIfEquals     Opcode = 3022
	DBObjectSetFieldIfEqualsResp Opcode = 3023
	DBObjectSetFieldsIfEquals    Opcode = 3024
	DBObjectSetFieldsIfEqualsRsp Opcode = 3025
	DBObjectSetFieldIfEmpty      Opcode = 3026
	DBObjectSetFieldIfEmptyResp  Opcode = 3027

	DBObjectDeleteField  Opcode = 3030
	DBObjectDeleteFields Opcode = 3031
	DBObjectDelete       Opcode = 3032
)

// Message director control opcodes. These are the only opcodes the bus
// itself interprets, and only when the datagram's recipient list is
// empty. Control datagrams are never re-broadcast.
const (
	MDAddChannel       Opcode = 9000
	MDRemoveChannel    Opcode = 9001
	MDAddRange         Opcode = 9002
	MDRemoveRange      Opcode = 9003
	MDAddPostRemove    Opcode = 9010
	MDClearPostRemoves Opcode = 9011
)

// IsControl reports whether the opcode is a message director control
// opcode. Control opcodes mutate routing state rather than carrying
// application payload.
func (op Opcode) IsControl() bool {
	switch op {
	case MDAddChannel, MDRemoveChannel, MDAddRange, MDRemoveRange,
		MDAddPostRemove, MDClearPostRemoves:
		return true
	}
	return false
}

// String returns the symbolic name for known opcodes and a numeric
// form for the rest. Routing never depends on this — it exists for
// logs.
func (op Opcode) String() string {
	switch op {
	case ClientHello:
		return "ClientHello"
	case ClientHelloResp:
		return "ClientHelloResp"
	case ClientDisconnect:
		return "ClientDisconnect"
	case ClientEject:
		return "ClientEject"
	case ClientHeartbeat:
		return "ClientHeartbeat"
	case MDAddChannel:
		return "MDAddChannel"
	case MDRemoveChannel:
		return "MDRemoveChannel"
	case MDAddRange:
		return "MDAddRange"
	case MDRemoveRange:
		return "MDRemoveRange"
	case MDAddPostRemove:
		return "MDAddPostRemove"
	case MDClearPostRemoves:
		return "MDClearPostRemoves"
	default:
		return fmt.Sprintf("Opcode(%d)", uint16(op))
	}
}

// catalog lists every opcode in the enumeration, in ascending numeric
// order. Used by the protocol signature; a new opcode anywhere in the
// space changes the signature.
var catalog = []Opcode{
	ClientHello, ClientHelloResp, ClientDisconnect, ClientEject,
	ClientHeartbeat,
	ClientObjectSetField, ClientObjectSetFields, ClientObjectLeaving,
	ClientObjectLocation, ClientEnterObjectRequired,
	ClientEnterObjectRequiredOther, ClientObjectLeavingOwner,
	ClientEnterObjectRequiredOwner, ClientEnterObjectRequiredOwnerOther,
	ClientAddInterest, ClientAddInterestMultiple, ClientRemoveInterest,
	ClientDoneInterestResp,

	CASetState, CASetClientID, CASendDatagram, CAEject, CADrop,
	CAGetNetworkAddress, CAGetNetworkAddressResp, CADeclareObject,
	CAUndeclareObject, CAAddSessionObject, CARemoveSessionObject,
	CASetFieldsSendable, CAOpenChannel, CACloseChannel, CAAddPostRemove,
	CAClearPostRemoves, CAAddInterest, CAAddInterestMultiple,
	CARemoveInterest,

	SSCreateObjectWithRequired, SSCreateObjectWithRequiredOther,
	SSDeleteAIObjects, SSObjectGetField, SSObjectGetFieldResp,
	SSObjectGetFields, SSObjectGetFieldsResp, SSObjectGetAll,
	SSObjectGetAllResp, SSObjectSetField, SSObjectSetFields,
	SSObjectDeleteFieldRAM, SSObjectDeleteFieldsRAM, SSObjectDeleteRAM,
	SSObjectSetLocation, SSObjectChangingLocation,
	SSObjectEnterLocationWithRequired,
	SSObjectEnterLocationWithRequiredOther, SSObjectGetLocation,
	SSObjectGetLocationResp, SSObjectSetAI, SSObjectChangingAI,
	SSObjectEnterAIWithRequired, SSObjectEnterAIWithRequiredOther,
	SSObjectGetAI, SSObjectGetAIResp, SSObjectSetOwner,
	SSObjectChangingOwner, SSObjectEnterOwnerWithRequired,
	SSObjectEnterOwnerWithRequiredOther, SSObjectGetOwner,
	SSObjectGetOwnerResp, SSObjectGetZoneObjects,
	SSObjectGetZonesObjects, SSObjectGetChildren, SSObjectGetZoneCount,
	SSObjectGetZoneCountResp, SSObjectGetZonesCount,
	SSObjectGetZonesCountResp, SSObjectGetChildCount,
	SSObjectGetChildCountResp, SSObjectDeleteZone, SSObjectDeleteZones,
	SSObjectDeleteChildren,

	DBSSObjectActivateWithDefaults, DBSSObjectActivateWithDefaultsOther,
	DBSSObjectGetActivated, DBSSObjectGetActivatedResp,
	DBSSObjectDeleteFieldDisk, DBSSObjectDeleteFieldsDisk,
	DBSSObjectDeleteDisk,

	DBCreateObject, DBCreateObjectResp, DBObjectGetField,
	DBObjectGetFieldResp, DBObjectGetFields, DBObjectGetFieldsResp,
	DBObjectGetAll, DBObjectGetAllResp, DBObjectSetField,
	DBObjectSetFields, DBObjectSetFieldIfEquals,
	DBObjectSetFieldIfEqualsResp, DBObjectSetFieldsIfEquals,
	DBObjectSetFieldsIfEqualsRsp, DBObjectSetFieldIfEmpty,
	DBObjectSetFieldIfEmptyResp, DBObjectDeleteField,
	DBObjectDeleteFields, DBObjectDelete,

	MDAddChannel, MDRemoveChannel, MDAddRange, MDRemoveRange,
	MDAddPostRemove, MDClearPostRemoves,
}
