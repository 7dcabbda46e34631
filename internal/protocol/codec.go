package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// readByte reads exactly one byte from r.
func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readString reads one length-prefixed UTF-8 field: a 1-byte length followed
// by that many bytes.
func readString(r io.Reader, k Kind) (string, error) {
	n, err := readByte(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	if !utf8.Valid(buf) {
		return "", errNotUTF8(k)
	}
	return string(buf), nil
}

// writeString appends one length-prefixed UTF-8 field to buf.
func writeString(buf *bytes.Buffer, k Kind, s string) error {
	if len(s) > maxFieldLen {
		return errFieldTooLong(k, len(s))
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

// EncodeBet appends the on-wire form of a single Bet (no kind byte, no
// framing of its own — bets are only ever embedded in a BetBatch).
func EncodeBet(buf *bytes.Buffer, b Bet) error {
	for _, field := range []string{b.Agency, b.FirstName, b.LastName, b.Document, b.Birthdate, b.Number} {
		if err := writeString(buf, KindBetBatch, field); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBet reads one Bet's fields in wire order: agency, first_name,
// last_name, document, birthdate, number.
func DecodeBet(r io.Reader) (Bet, error) {
	var b Bet
	var err error
	if b.Agency, err = readString(r, KindBetBatch); err != nil {
		return Bet{}, err
	}
	if b.FirstName, err = readString(r, KindBetBatch); err != nil {
		return Bet{}, err
	}
	if b.LastName, err = readString(r, KindBetBatch); err != nil {
		return Bet{}, err
	}
	if b.Document, err = readString(r, KindBetBatch); err != nil {
		return Bet{}, err
	}
	if b.Birthdate, err = readString(r, KindBetBatch); err != nil {
		return Bet{}, err
	}
	if b.Number, err = readString(r, KindBetBatch); err != nil {
		return Bet{}, err
	}
	return b, nil
}

// EncodeBetBatch returns the complete BET_BATCH frame: kind byte, uint32_be
// count, then each bet in order.
func EncodeBetBatch(batch BetBatch) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindBetBatch))
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(batch.Bets))); err != nil {
		return nil, err
	}
	for _, b := range batch.Bets {
		if err := EncodeBet(&buf, b); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeBetBatch reads a BET_BATCH body: a uint32_be count followed by that
// many Bets.
func DecodeBetBatch(r io.Reader) (BetBatch, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return BetBatch{}, err
	}
	if count > maxBatchBets {
		return BetBatch{}, errTooManyBets(int(count))
	}
	bets := make([]Bet, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := DecodeBet(r)
		if err != nil {
			return BetBatch{}, err
		}
		bets = append(bets, b)
	}
	return BetBatch{Bets: bets}, nil
}

// EncodeBatchConfirmation returns the complete BATCH_CONFIRMATION frame.
func EncodeBatchConfirmation(c BatchConfirmation) []byte {
	status := BatchFailure
	if c.Success {
		status = BatchSuccess
	}
	return []byte{byte(KindBatchConfirmation), status}
}

// DecodeBatchConfirmation reads a BATCH_CONFIRMATION body: a single status byte.
func DecodeBatchConfirmation(r io.Reader) (BatchConfirmation, error) {
	status, err := readByte(r)
	if err != nil {
		return BatchConfirmation{}, err
	}
	return BatchConfirmation{Success: status == BatchSuccess}, nil
}

// EncodeFinalization returns the complete FINALIZATION frame.
func EncodeFinalization(f Finalization) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindFinalization))
	if err := writeString(&buf, KindFinalization, f.AgencyID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFinalization reads a FINALIZATION body: one length-prefixed decimal
// agency id string.
func DecodeFinalization(r io.Reader) (Finalization, error) {
	id, err := readString(r, KindFinalization)
	if err != nil {
		return Finalization{}, err
	}
	return Finalization{AgencyID: id}, nil
}

// EncodeGetWinners returns the complete GET_WINNERS frame.
func EncodeGetWinners(g GetWinners) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindGetWinners))
	if err := writeString(&buf, KindGetWinners, g.AgencyID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeGetWinners reads a GET_WINNERS body: one length-prefixed decimal
// agency id string.
func DecodeGetWinners(r io.Reader) (GetWinners, error) {
	id, err := readString(r, KindGetWinners)
	if err != nil {
		return GetWinners{}, err
	}
	return GetWinners{AgencyID: id}, nil
}

// EncodeNoWinnersYet returns the complete NO_WINNERS_YET frame (empty body).
func EncodeNoWinnersYet() []byte {
	return []byte{byte(KindNoWinnersYet)}
}

// EncodeWinners returns the complete WINNERS frame: kind byte, uint8 count,
// then each document. Fails with a protocol Error rather than truncating if
// there are more than 255 winners.
func EncodeWinners(w Winners) ([]byte, error) {
	if len(w.Documents) > maxWinners {
		return nil, errTooManyWinners(len(w.Documents))
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(KindWinners))
	buf.WriteByte(byte(len(w.Documents)))
	for _, doc := range w.Documents {
		if err := writeString(&buf, KindWinners, doc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeWinners reads a WINNERS body: a uint8 count followed by that many
// length-prefixed documents.
func DecodeWinners(r io.Reader) (Winners, error) {
	count, err := readByte(r)
	if err != nil {
		return Winners{}, err
	}
	docs := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		doc, err := readString(r, KindWinners)
		if err != nil {
			return Winners{}, err
		}
		docs = append(docs, doc)
	}
	return Winners{Documents: docs}, nil
}

// DecodeKind reads the 1-byte kind discriminator that prefixes every message.
func DecodeKind(r io.Reader) (Kind, error) {
	b, err := readByte(r)
	if err != nil {
		return 0, err
	}
	switch Kind(b) {
	case KindBetBatch, KindBatchConfirmation, KindFinalization, KindGetWinners, KindNoWinnersYet, KindWinners:
		return Kind(b), nil
	default:
		return 0, errUnknownKind(Kind(b))
	}
}
