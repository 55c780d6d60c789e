// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

// Package email generates the DNS records an operator must publish to prove
// ownership of a sending domain (SPF, DKIM, DMARC) and defines the narrow
// interface a transactional email provider must satisfy. Concrete provider
// adapters (SES, Postmark, ...) are out of scope: callers supply their own
// Provider implementation.
package email

import (
	"context"
	"fmt"

	ctlerrors "github.com/temps-platform/control-plane/errors"
)

// RecordType is the DNS RR type a verification record must be published as.
type RecordType string

const (
	RecordTXT RecordType = "TXT"
	RecordMX  RecordType = "MX"
)

// RecordStatus tracks whether a DNSRecord has been observed on the wire yet.
// Populating it is the caller's job (a DNS lookup or a provider API call);
// this package only decides what the record should look like.
type RecordStatus string

const (
	RecordUnknown  RecordStatus = "unknown"
	RecordPending  RecordStatus = "pending"
	RecordVerified RecordStatus = "verified"
	RecordFailed   RecordStatus = "failed"
)

// DNSRecord is one record an operator must add to their DNS zone.
type DNSRecord struct {
	Type     RecordType
	Name     string
	Value    string
	Priority *uint16
	Status   RecordStatus
}

// defaultDKIMSelector is the TXT prefix DKIM records publish under when the
// caller supplies no selector: "temps" yields "temps._domainkey.<domain>".
const defaultDKIMSelector = "temps"

// DomainIdentity is the full set of verification records a sending domain
// needs, plus the DKIM selector they were generated under.
type DomainIdentity struct {
	Domain       string
	DKIMSelector string
	SPFRecord    DNSRecord
	DKIMRecord   DNSRecord
	DMARCRecord  DNSRecord
}

// GenerateDomainIdentity builds the SPF, DKIM, and DMARC records a domain
// needs for transactional email to pass receiver authentication checks.
// dkimPublicKey is the RSA public key (already base64-encoded) the provider
// issued for this domain; selector defaults to defaultDKIMSelector when
// empty. dmarcRUA is the optional "mailto:" address aggregate reports are
// sent to; when empty, the DMARC record omits the rua tag.
func GenerateDomainIdentity(domain, selector, dkimPublicKey, dmarcRUA string) (DomainIdentity, error) {
	if domain == "" {
		return DomainIdentity{}, &ctlerrors.EmailError{Reason: "domain must not be empty"}
	}
	if dkimPublicKey == "" {
		return DomainIdentity{}, &ctlerrors.EmailError{Reason: "dkim public key must not be empty"}
	}
	if selector == "" {
		selector = defaultDKIMSelector
	}

	identity := DomainIdentity{
		Domain:       domain,
		DKIMSelector: selector,
		SPFRecord: DNSRecord{
			Type:   RecordTXT,
			Name:   domain,
			Value:  spfRecordValue(),
			Status: RecordPending,
		},
		DKIMRecord: DNSRecord{
			Type:   RecordTXT,
			Name:   fmt.Sprintf("%s._domainkey.%s", selector, domain),
			Value:  dkimRecordValue(dkimPublicKey),
			Status: RecordPending,
		},
		DMARCRecord: DNSRecord{
			Type:   RecordTXT,
			Name:   fmt.Sprintf("_dmarc.%s", domain),
			Value:  dmarcRecordValue(dmarcRUA),
			Status: RecordPending,
		},
	}
	return identity, nil
}

// spfRecordValue returns a permissive-default SPF TXT value: authorize the
// provider's mail servers via "include" is the provider's job to supply,
// so this hint only asserts "no other sender may claim this domain" until
// the caller appends their provider's include mechanism.
func spfRecordValue() string {
	return "v=spf1 ~all"
}

func dkimRecordValue(publicKey string) string {
	return fmt.Sprintf("v=DKIM1; k=rsa; p=%s", publicKey)
}

// dmarcRecordValue defaults to the weakest enforcement policy (p=none, report
// only) since flipping straight to quarantine/reject before SPF and DKIM are
// confirmed verified would risk legitimate mail being dropped.
func dmarcRecordValue(rua string) string {
	if rua == "" {
		return "v=DMARC1; p=none"
	}
	return fmt.Sprintf("v=DMARC1; p=none; rua=mailto:%s", rua)
}

// Records flattens a DomainIdentity into the record list a UI or CLI would
// render, in the order a user should publish them: SPF, DKIM, DMARC.
func (d DomainIdentity) Records() []DNSRecord {
	return []DNSRecord{d.SPFRecord, d.DKIMRecord, d.DMARCRecord}
}

// AllVerified reports whether every record in the identity has been
// observed as verified, mirroring the all-or-nothing status rollup the
// domain service in the original implementation used to decide whether a
// sending domain as a whole is "verified".
func (d DomainIdentity) AllVerified() bool {
	for _, r := range d.Records() {
		if r.Status != RecordVerified {
			return false
		}
	}
	return true
}

// AnyFailed reports whether any record has been observed as failed.
func (d DomainIdentity) AnyFailed() bool {
	for _, r := range d.Records() {
		if r.Status == RecordFailed {
			return true
		}
	}
	return false
}

// Message is a transactional email to send through a Provider.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Provider sends transactional email through whatever backend an operator
// has wired up. No concrete implementation ships in this module; callers
// supply their own (SES, Postmark, SMTP, ...).
type Provider interface {
	Send(ctx context.Context, msg Message) error
}
