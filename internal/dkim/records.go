package dkim

// recordTTL はDNSレコードの固定TTL（秒）。
const recordTTL = 3600

// DNSRecord はドメイン所有者が公開すべきTXTレコードを表す。
type DNSRecord struct {
	Host  string `json:"host"`
	Type  string `json:"type"`
	Value string `json:"value"`
	TTL   int    `json:"ttl"`
}

// RecordSet はドメインに対して公開すべきレコード一式を表す。
type RecordSet struct {
	Signing         DNSRecord `json:"signing"`
	SenderPolicy    DNSRecord `json:"sender_policy"`
	ReportingPolicy DNSRecord `json:"reporting_policy"`
}

// Records はドメイン名・セレクタ・公開鍵からレコード一式を導出する。
// 純粋関数であり、ネットワークや状態へのアクセスは行わない。
// サブドメイン（例: mail.example.com）の場合もホスト名は
// 完全なドメイン名に前置し、親ドメインへ切り詰めない。
func Records(domainName, selector, publicKey string) RecordSet {
	return RecordSet{
		Signing: DNSRecord{
			Host:  selector + "._domainkey." + domainName,
			Type:  "TXT",
			Value: PublicKeyTXT(publicKey),
			TTL:   recordTTL,
		},
		SenderPolicy: DNSRecord{
			Host:  domainName,
			Type:  "TXT",
			Value: "v=spf1 a mx ~all",
			TTL:   recordTTL,
		},
		ReportingPolicy: DNSRecord{
			Host:  "_dmarc." + domainName,
			Type:  "TXT",
			Value: "v=DMARC1; p=quarantine; rua=mailto:dmarc@" + domainName,
			TTL:   recordTTL,
		},
	}
}
