package state

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	accountPrefix      = []byte("funding/account/")
	contributionPrefix = []byte("funding/contribution/")
	funderSeqKeyBytes  = []byte("funding/funders")
)

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func contributionKey(addr []byte) []byte {
	buf := make([]byte, len(contributionPrefix)+len(addr))
	copy(buf, contributionPrefix)
	copy(buf[len(contributionPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func funderSeqKey() []byte {
	return ethcrypto.Keccak256(funderSeqKeyBytes)
}
