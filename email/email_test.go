package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateDomainIdentityDefaultsSelector(t *testing.T) {
	id, err := GenerateDomainIdentity("example.com", "", "PUBLICKEY", "")
	require.NoError(t, err)
	require.Equal(t, "temps", id.DKIMSelector)
	require.Equal(t, "temps._domainkey.example.com", id.DKIMRecord.Name)
	require.Equal(t, "_dmarc.example.com", id.DMARCRecord.Name)
	require.Contains(t, id.DMARCRecord.Value, "p=none")
	require.NotContains(t, id.DMARCRecord.Value, "rua=")
}

func TestGenerateDomainIdentityCustomSelectorAndRUA(t *testing.T) {
	id, err := GenerateDomainIdentity("example.com", "ses", "PUBLICKEY", "dmarc@example.com")
	require.NoError(t, err)
	require.Equal(t, "ses._domainkey.example.com", id.DKIMRecord.Name)
	require.Contains(t, id.DMARCRecord.Value, "rua=mailto:dmarc@example.com")
	require.Contains(t, id.DKIMRecord.Value, "PUBLICKEY")
}

func TestGenerateDomainIdentityRejectsEmptyInputs(t *testing.T) {
	_, err := GenerateDomainIdentity("", "", "key", "")
	require.Error(t, err)

	_, err = GenerateDomainIdentity("example.com", "", "", "")
	require.Error(t, err)
}

func TestRecordsOrderAndVerification(t *testing.T) {
	id, err := GenerateDomainIdentity("example.com", "", "PUBLICKEY", "")
	require.NoError(t, err)

	records := id.Records()
	require.Len(t, records, 3)
	require.Equal(t, RecordTXT, records[0].Type)
	require.False(t, id.AllVerified())
	require.False(t, id.AnyFailed())

	id.SPFRecord.Status = RecordVerified
	id.DKIMRecord.Status = RecordVerified
	id.DMARCRecord.Status = RecordVerified
	require.True(t, id.AllVerified())

	id.DKIMRecord.Status = RecordFailed
	require.True(t, id.AnyFailed())
	require.False(t, id.AllVerified())
}

type fakeProvider struct {
	sent []Message
}

func (f *fakeProvider) Send(_ context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func TestProviderInterfaceIsSatisfiable(t *testing.T) {
	var p Provider = &fakeProvider{}
	err := p.Send(context.Background(), Message{From: "a@b.com", To: []string{"c@d.com"}, Subject: "hi"})
	require.NoError(t, err)
}
